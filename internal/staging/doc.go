// Package staging copies TLS key material to where the frpc process can read
// it. The https2http plugin loads certificates from files, so every Secret an
// https proxy references must exist next to frpc before the fragment ships.
//
// Two Stager implementations cover the two deployment modes. The
// ClusterStager mirrors Secrets into the runtime namespace, where the
// Deployment mounts them; copies are owned by the Client object and
// garbage-collected with it. The FileStager writes the key material straight
// to the certs directory of a locally supervised frpc.
//
// Staging is idempotent in both directions: re-staging unchanged material is
// a no-op and unstaging absent material is not an error.
package staging
