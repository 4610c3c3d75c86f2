// Package logging provides file-based structured logging with rotation
// for the cocowatch coordinator.
//
// In stdio MCP mode stdout is reserved exclusively for JSON-RPC, so logs
// go to a rotating file under ~/.cocowatch/logs/ (plus stderr when the
// transport allows it).
package logging
