package telegram

import (
	"sync"

	"github.com/digkill/PlantDoctor/internal/models"
)

type ChatState int

const (
	StateIdle ChatState = iota
	StateAwaitingLight
	StateAwaitingSoil
	StateAwaitingWatered
	StateAwaitingSymptoms
	StateAwaitingChanges
	StateAwaitingSave
	StateAwaitingPhoto
)

// Chat is the in-progress conversation of one chat. Signed-in state is not
// kept here; it lives in the session store so it survives restarts.
type Chat struct {
	State         ChatState
	PlantName     string
	Image         []byte
	MediaType     string
	Questionnaire models.Questionnaire
	Diagnosis     *models.Diagnosis
	PhotoPlantID  int64
	PhotoNotes    string
}

func (c Chat) clone() Chat {
	out := c
	out.Image = append([]byte(nil), c.Image...)
	out.Questionnaire.Symptoms = append([]string(nil), c.Questionnaire.Symptoms...)
	if c.Diagnosis != nil {
		d := *c.Diagnosis
		out.Diagnosis = &d
	}
	return out
}

type StateManager struct {
	mu    sync.RWMutex
	chats map[int64]Chat
}

func NewStateManager() *StateManager {
	return &StateManager{
		chats: make(map[int64]Chat),
	}
}

// Get returns a copy of the chat state; changes take effect through Set.
func (m *StateManager) Get(chatID int64) Chat {
	m.mu.RLock()
	chat, ok := m.chats[chatID]
	m.mu.RUnlock()
	if ok {
		return chat.clone()
	}
	return Chat{State: StateIdle}
}

func (m *StateManager) Set(chatID int64, chat Chat) {
	m.mu.Lock()
	m.chats[chatID] = chat.clone()
	m.mu.Unlock()
}

func (m *StateManager) Reset(chatID int64) {
	m.mu.Lock()
	delete(m.chats, chatID)
	m.mu.Unlock()
}
