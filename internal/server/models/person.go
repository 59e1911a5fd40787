package models

import "time"

// Person is a collaborator allowed to use the box.
type Person struct {
	ID           int64
	Name         string
	Registration string
	Email        string
	Active       bool
}

// Card is an NFC credential bound to a person.
type Card struct {
	ID         int64
	UID        string
	PersonID   int64
	Nickname   string
	Active     bool
	LastUsedAt *time.Time
}

// Identity is the result of resolving a card UID.
type Identity struct {
	Card   Card
	Person Person
}
