// Package telegram is an optional remote control for the dashboard session.
//
// Commands typed by allowed users (/range, /panel, /series, /speedtest,
// /config, /status) go through the same Dispatcher as the web controls.
// Speedtest output is mirrored to a configured chat.
package telegram
