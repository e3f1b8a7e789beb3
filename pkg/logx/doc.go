// Package logx provides the process-wide structured logging facade.
//
// It wraps zerolog behind a small Logger value type so components can hold
// loggers by value, derive them with fixed fields via With(), and keep
// logging "live" across runtime config changes applied through Service.Apply.
package logx
