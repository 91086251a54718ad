package entities

type Account struct {
	ID    int64 `jorm:"pk getter:GetID"`
	Owner string
}

func (a *Account) GetID() int64 {
	a.Owner = "touched"
	return a.ID
}

type Note struct {
	Key  string `jorm:"pk getter:NoteKey"`
	Body string
}

func (n Note) NoteKey() string { return n.Key }

func (n *Note) Append(parts ...string) (int, error) {
	for _, p := range parts {
		n.Body += p
	}
	return len(n.Body), nil
}

// Settings has no identifier and is not an entity.
type Settings struct {
	Name string
}
