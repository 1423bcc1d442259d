//go:build sqlite_vec && cgo

package vector

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

// init registers the sqlite-vec extension with the mattn/go-sqlite3
// driver wherever this build tag is set. Store does not create or query
// a sqlite-vec index, so searches run through the linear cosine scan in
// searchLinear with or without the tag.
func init() {
	vec.Auto()
}
