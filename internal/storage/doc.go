// Package storage is the object store collaborator. Objects are addressed by
// slash-separated keys under two prefixes: temporary proxies that finalize
// releases, and published artifacts. The local backend maps keys onto a
// directory tree and can expose them through a public base URL.
package storage
