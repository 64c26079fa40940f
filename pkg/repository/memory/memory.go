package memory

import (
	"github.com/secmon-lab/contrack/pkg/domain/interfaces"
)

var (
	ErrNotFound      = interfaces.ErrNotFound
	ErrAlreadyExists = interfaces.ErrAlreadyExists
)

// Repository is an alias for Memory to match the pattern
type Repository = Memory

type Memory struct {
	contact *contactRepository
}

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	return &Memory{
		contact: newContactRepository(),
	}
}

func (m *Memory) Contact() interfaces.ContactRepository {
	return m.contact
}
