// Package sources resolves item source descriptors into local files the
// media tools can read. Local paths are used in place, URLs are downloaded
// into the item's staging directory, and object keys are resolved through
// the object store.
package sources
