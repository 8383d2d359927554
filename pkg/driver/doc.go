// Package driver declares the resource-offer driver contract the
// state manager consumes to terminate a task. The driver itself — the
// Mesos-style executor/offer plumbing — is an external collaborator;
// this package only names the interface.
package driver
