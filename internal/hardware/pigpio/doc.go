// Package pigpio is a client for the pigpio daemon's socket interface.
//
// pigpiod accepts fixed 16-byte little-endian command frames
// {cmd, p1, p2, p3} on TCP port 8888 and answers each with a 16-byte frame
// whose last word is the result. A negative result is a pigpio error code.
//
// The client covers what the installation needs: GPIO modes, pull-up/down
// resistors, level reads and writes, and hardware-timed PWM for the fog
// machine servo.
//
// Thread Safety: all methods are safe for concurrent use. Requests are
// serialised on the single connection.
package pigpio
