// Package player implements the instance lifecycle: it detects the environment,
// resolves controller, extension and player modules, selects a playable media
// source, loads the controller and tears everything down on Destroy.
//
// States move Constructing → Initializing → Ready | Error → Destroyed. Failures
// while resolving the controller or player are returned to the caller of Init;
// media selection and controller load failures move the instance to Error and
// emit an error event instead.
package player
