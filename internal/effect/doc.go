// Package effect runs timed physical effects (fog, water) alongside a scene.
//
// A Task drives one Actuator through a timing cycle:
//
//	prepare -> wait delay -> on -> wait on -> off -> wait off -> on -> ...
//
// until its context is cancelled. However the task ends, its actuator is
// switched Off and released before Run returns. The cleanup uses a context
// detached from the cancelled one so it reaches the hardware even during
// shutdown.
//
// Actuators borrow a GPIO connection; *pigpio.Client satisfies GPIO.
package effect
