package auth

import (
	"sort"
	"sync"
)

// User is a Telegram account known to the bot. A user counts as registered
// once they have shared a contact.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone,omitempty"`
}

func (u User) Registered() bool { return u.Phone != "" }

type Repository interface {
	LoadAll() ([]User, error)
	Upsert(user User) error
}

// Directory is the in-memory view of known users, written through to repo.
type Directory struct {
	mu    sync.RWMutex
	repo  Repository
	users map[int64]User
}

func NewWithRepo(repo Repository) (*Directory, error) {
	d := &Directory{repo: repo, users: make(map[int64]User)}
	if repo != nil {
		users, err := repo.LoadAll()
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			d.users[u.ID] = u
		}
	}
	return d, nil
}

func (d *Directory) Get(userID int64) (User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userID]
	return u, ok
}

func (d *Directory) IsRegistered(userID int64) bool {
	u, ok := d.Get(userID)
	return ok && u.Registered()
}

// Touch records a user seen for the first time. Known users are left as is.
func (d *Directory) Touch(user User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[user.ID]; ok {
		return nil
	}
	return d.upsertLocked(user)
}

// Register stores the user with their shared phone number.
func (d *Directory) Register(user User, phone string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	user.Phone = phone
	return d.upsertLocked(user)
}

func (d *Directory) upsertLocked(user User) error {
	if d.repo != nil {
		if err := d.repo.Upsert(user); err != nil {
			return err
		}
	}
	d.users[user.ID] = user
	return nil
}

func (d *Directory) List() []User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
