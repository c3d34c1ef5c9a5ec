// Package services holds cross-cutting helpers shared by the external
// service clients: sentinel error classification and context annotations
// used for structured logging.
package services
