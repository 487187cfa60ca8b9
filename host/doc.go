// Package host models the values that cross the boundary between an
// embedding runtime and a guest module: byte buffers and typed views that
// carry module binaries, import objects, and the functions, memories,
// globals and tables an import object may provide.
package host
