package chat

import "nearprop/chat/internal/models"

// transcript is the ordered message list of one room. Ids are unique.
type transcript struct {
	msgs []models.Message
	ids  map[int64]struct{}
}

func newTranscript() *transcript {
	return &transcript{ids: make(map[int64]struct{})}
}

// insert places m by CreatedAt, after any message with an equal timestamp.
// Messages without a timestamp go to the end. A known id only advances
// the stored status and ownership.
func (t *transcript) insert(m models.Message) bool {
	if _, ok := t.ids[m.ID]; ok {
		if i := t.index(m.ID); i >= 0 {
			t.msgs[i].Status = t.msgs[i].Status.Advance(m.Status)
			t.msgs[i].Mine = t.msgs[i].Mine || m.Mine
		}
		return false
	}
	if !m.Status.Valid() {
		m.Status = models.StatusSent
	}

	pos := len(t.msgs)
	if !m.CreatedAt.IsZero() {
		for pos > 0 && t.msgs[pos-1].CreatedAt.After(m.CreatedAt) {
			pos--
		}
	}
	t.msgs = append(t.msgs, models.Message{})
	copy(t.msgs[pos+1:], t.msgs[pos:])
	t.msgs[pos] = m
	t.ids[m.ID] = struct{}{}
	return true
}

func (t *transcript) index(id int64) int {
	for i := len(t.msgs) - 1; i >= 0; i-- {
		if t.msgs[i].ID == id {
			return i
		}
	}
	return -1
}

func (t *transcript) advance(id int64, status models.MessageStatus) bool {
	i := t.index(id)
	if i < 0 {
		return false
	}
	next := t.msgs[i].Status.Advance(status)
	changed := next != t.msgs[i].Status
	t.msgs[i].Status = next
	return changed
}

func (t *transcript) get(id int64) (models.Message, bool) {
	if i := t.index(id); i >= 0 {
		return t.msgs[i], true
	}
	return models.Message{}, false
}

func (t *transcript) len() int { return len(t.msgs) }

func (t *transcript) snapshot() []models.Message {
	return append([]models.Message(nil), t.msgs...)
}
