package store

// Driver used: modernc.org/sqlite (pure Go, no cgo toolchain needed).

import (
	_ "modernc.org/sqlite"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"
