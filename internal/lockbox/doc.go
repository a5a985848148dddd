// Package lockbox aggregates puzzle solve signals and releases the lock once
// every puzzle has reported in.
//
// Solve signals are trusted as sent. Clients run their puzzles entirely in the
// browser and the server has nothing to check a signal against, so anyone on
// the device's network who can reach /solve can open the box. That is the
// security model of a novelty kiosk, not an oversight.
//
// A Box lives for exactly one process run. There is no relock: restarting the
// process (power-cycling the device) is the only way back to an empty, locked box.
package lockbox
