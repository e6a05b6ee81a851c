// Package govehicle is a vehicle framework on top of up to three CAN buses.
//
// A Fabric holds the named buses and fans received frames out to listeners.
// A Factory maps vehicle type names to profiles and keeps at most one Vehicle
// alive. The Vehicle runs an OBD-II poller driven by the 1 second Ticker and
// hands frames and poll replies to its Profile.
package govehicle
