// Package trigger arms the installation and starts a scene when every
// button is pressed at once.
//
// The Controller cycles Disarmed -> Armed -> Triggered -> Disarmed. After a
// settle delay it samples the buttons; a scene fires on the rising edge of
// "all buttons active". Buttons already held while arming never fire, so a
// visitor leaning on them does not loop scenes. Manual triggers from the
// HTTP API or MQTT are accepted only while Armed.
package trigger
