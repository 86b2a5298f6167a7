// Package domain holds the core workflow model: graphs, nodes, execution
// results, run options and the error taxonomy shared by every layer.
package domain
