// Package httputil writes the JSON envelope every function endpoint uses:
//
//	{"success": true, ...payload fields}
//	{"success": false, "error": "message"}
//
// Handlers never call http.ResponseWriter directly.
package httputil
