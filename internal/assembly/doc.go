// Package assembly renders a validated decision document into the job
// artifact and publishes it. Execute cuts each segment from the item's
// original source and concatenates them in order; finalize stores the
// artifact and is the only place temporary objects are deleted.
package assembly
