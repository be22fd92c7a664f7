// Package domain defines the core business entities of the song
// identification service: cached identification results and the structured
// error taxonomy shared by the pipeline collaborators.
package domain
