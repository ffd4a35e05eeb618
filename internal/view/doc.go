// Package view holds VisualizationSink implementations that do not render
// anything themselves: an in-memory frame that remembers the latest state and
// announces every change on the event bus, and a fanout that forwards to
// several sinks.
package view
