// Package logx wraps zerolog behind a small structured logging API.
//
// Components hold a Logger value; the Service owns sink configuration and can
// swap outputs/levels at runtime without invalidating existing Logger values.
package logx
