// Package fetch is the HTTP collaborator of the download engine: a pooled
// client that buffers whole response bodies and reports failures with the
// pixiedl error taxonomy.
package fetch
