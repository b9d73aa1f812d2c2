// Package services provides the service registry for contractd.
//
// Build wires the Supabase client, analysis service, pipeline runner, local
// store and event publisher from configuration. The HTTP server and the CLI
// read them through the Registry accessors.
package services
