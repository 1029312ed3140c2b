package models

// Upload is a file received from a client, already read into memory.
type Upload struct {
	Name string
	Data []byte
}
