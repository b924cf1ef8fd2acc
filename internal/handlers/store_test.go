package handlers

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"taskeer/internal/database"
	"taskeer/internal/models"
	"taskeer/internal/roles"
)

// memStore is an in-memory stand-in for *database.DB.
type memStore struct {
	mu            sync.Mutex
	nextID        int
	users         map[int]*models.User
	lists         map[int]*models.List
	members       map[int][]models.Membership
	tasks         map[int]*models.Task
	invitations   map[string]*models.Invitation
	notifications []models.Notification
}

func newMemStore() *memStore {
	return &memStore{
		nextID:      100,
		users:       map[int]*models.User{},
		lists:       map[int]*models.List{},
		members:     map[int][]models.Membership{},
		tasks:       map[int]*models.Task{},
		invitations: map[string]*models.Invitation{},
	}
}

func (s *memStore) id() int {
	s.nextID++
	return s.nextID
}

func (s *memStore) addUser(id int, name, email, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &models.User{ID: id, Name: name, Email: email}
	if hash != "" {
		u.PasswordHash = &hash
	}
	s.users[id] = u
}

func (s *memStore) addList(id, owner int, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[id] = &models.List{ID: id, OwnerID: owner, Name: name}
}

func (s *memStore) addMember(listID, userID int, role models.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[userID]
	m := models.Membership{ListID: listID, UserID: userID, Role: role}
	if u != nil {
		m.Email, m.Name = u.Email, u.Name
	}
	s.members[listID] = append(s.members[listID], m)
}

func (s *memStore) addTask(id, listID int, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lid := listID
	s.tasks[id] = &models.Task{ID: id, ListID: &lid, Name: name, State: models.StatePending, Priority: models.PriorityNormal}
}

func (s *memStore) roleOf(listID, userID int) models.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members[listID] {
		if m.UserID == userID {
			return m.Role
		}
	}
	return ""
}

func (s *memStore) sent(userID int) []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

func (s *memStore) CreateUser(_ context.Context, name, email, hash string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return nil, database.ErrConflict
		}
	}
	u := &models.User{ID: s.id(), Name: name, Email: strings.ToLower(email), PasswordHash: &hash}
	s.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (s *memStore) UserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *memStore) UserByID(_ context.Context, id int) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *u
	cp.PasswordHash = nil
	return &cp, nil
}

func (s *memStore) Access(_ context.Context, listID, userID int) (roles.Access, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[listID]
	if !ok {
		return roles.Access{}, database.ErrNotFound
	}
	return roles.ResolveRole(*l, s.members[listID], userID)
}

func (s *memStore) CanJoin(ctx context.Context, listID, userID int) (bool, error) {
	_, err := s.Access(ctx, listID, userID)
	return err == nil, nil
}

func (s *memStore) ListsForUser(_ context.Context, userID int) ([]models.List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.List{}
	for _, l := range s.lists {
		if l.OwnerID == userID {
			cp := *l
			cp.MyRole = models.RoleOwner
			out = append(out, cp)
			continue
		}
		for _, m := range s.members[l.ID] {
			if m.UserID == userID {
				cp := *l
				cp.MyRole = m.Role
				out = append(out, cp)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) CreateList(_ context.Context, ownerID int, req models.CreateListRequest) (*models.List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := &models.List{ID: s.id(), Name: req.Name, OwnerID: ownerID, Color: req.Color, Icon: req.Icon, Important: req.Important}
	s.lists[l.ID] = l
	cp := *l
	cp.MyRole = models.RoleOwner
	return &cp, nil
}

func (s *memStore) GetList(_ context.Context, listID int) (*models.List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[listID]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *memStore) UpdateList(_ context.Context, listID int, req models.UpdateListRequest) (*models.List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[listID]
	if !ok {
		return nil, database.ErrNotFound
	}
	if req.Name != nil {
		l.Name = *req.Name
	}
	cp := *l
	return &cp, nil
}

func (s *memStore) DeleteList(_ context.Context, listID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lists[listID]; !ok {
		return database.ErrNotFound
	}
	delete(s.lists, listID)
	delete(s.members, listID)
	return nil
}

func (s *memStore) SetShareKey(_ context.Context, listID int, key string) (*models.List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.lists {
		if l.ShareKey != nil && *l.ShareKey == key && l.ID != listID {
			return nil, database.ErrConflict
		}
	}
	l, ok := s.lists[listID]
	if !ok {
		return nil, database.ErrNotFound
	}
	k := key
	l.Shareable, l.ShareKey = true, &k
	cp := *l
	return &cp, nil
}

func (s *memStore) ListByShareKey(_ context.Context, key string) (*models.List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.lists {
		if l.Shareable && l.ShareKey != nil && *l.ShareKey == key {
			cp := *l
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *memStore) Unshare(_ context.Context, listID int) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[listID]
	if !ok {
		return nil, database.ErrNotFound
	}
	l.Shareable, l.ShareKey = false, nil
	var removed []int
	for _, m := range s.members[listID] {
		removed = append(removed, m.UserID)
	}
	delete(s.members, listID)
	return removed, nil
}

func (s *memStore) SharedLists(ctx context.Context, userID int) ([]models.List, error) {
	all, _ := s.ListsForUser(ctx, userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.List{}
	for _, l := range all {
		if l.OwnerID != userID || l.Shareable || len(s.members[l.ID]) > 0 {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *memStore) Members(_ context.Context, listID int) ([]models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Membership{}, s.members[listID]...), nil
}

func (s *memStore) AddMember(_ context.Context, listID, userID int, role models.Role) error {
	s.mu.Lock()
	for _, m := range s.members[listID] {
		if m.UserID == userID {
			s.mu.Unlock()
			return database.ErrConflict
		}
	}
	s.mu.Unlock()
	s.addMember(listID, userID, role)
	return nil
}

func (s *memStore) SetMemberRole(_ context.Context, listID, userID int, role models.Role) (models.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.members[listID] {
		if m.UserID == userID {
			old := m.Role
			s.members[listID][i].Role = role
			return old, nil
		}
	}
	return "", database.ErrNotFound
}

func (s *memStore) RemoveMember(_ context.Context, listID, userID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms := s.members[listID]
	for i, m := range ms {
		if m.UserID == userID {
			s.members[listID] = append(ms[:i:i], ms[i+1:]...)
			return nil
		}
	}
	return database.ErrNotFound
}

func (s *memStore) TasksForList(_ context.Context, listID int) ([]models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Task{}
	for _, t := range s.tasks {
		if t.ListID != nil && *t.ListID == listID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) GetTask(_ context.Context, taskID int) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) CreateTask(_ context.Context, creatorID int, req models.CreateTaskRequest) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &models.Task{ID: s.id(), ListID: req.ListID, CreatorID: creatorID, Name: req.Name, State: models.StatePending, Priority: models.PriorityNormal}
	s.tasks[t.ID] = t
	cp := *t
	return &cp, nil
}

func (s *memStore) UpdateTask(_ context.Context, taskID int, req models.UpdateTaskRequest) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return nil, database.ErrNotFound
	}
	if req.Name != nil {
		t.Name = *req.Name
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) DeleteTask(_ context.Context, taskID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[taskID]; !ok {
		return database.ErrNotFound
	}
	delete(s.tasks, taskID)
	return nil
}

func (s *memStore) withTask(taskID int, fn func(*models.Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return database.ErrNotFound
	}
	fn(t)
	return nil
}

func (s *memStore) SetTaskState(_ context.Context, taskID int, state models.TaskState) error {
	return s.withTask(taskID, func(t *models.Task) { t.State = state })
}

func (s *memStore) SetMyDay(_ context.Context, taskID int, myDay bool) error {
	return s.withTask(taskID, func(t *models.Task) { t.MyDay = myDay })
}

func (s *memStore) SetAssignee(_ context.Context, taskID int, userID *int) error {
	return s.withTask(taskID, func(t *models.Task) { t.AssigneeID = userID })
}

func (s *memStore) CreateInvitation(_ context.Context, listID int, email string, role models.Role, invitedBy int) (*models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[listID]
	if !ok {
		return nil, database.ErrNotFound
	}
	inv := &models.Invitation{
		Token:     "tok-" + strings.ReplaceAll(email, "@", "-"),
		ListID:    listID,
		ListName:  l.Name,
		Email:     email,
		Role:      role,
		Status:    models.InvitationPending,
		InvitedBy: invitedBy,
		CreatedAt: time.Now(),
	}
	s.invitations[inv.Token] = inv
	cp := *inv
	return &cp, nil
}

func (s *memStore) Invitation(_ context.Context, token string) (*models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[token]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (s *memStore) PendingInvitations(_ context.Context, email string) ([]models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Invitation{}
	for _, inv := range s.invitations {
		if strings.EqualFold(inv.Email, email) && inv.Status == models.InvitationPending {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (s *memStore) AnswerInvitation(ctx context.Context, token string, userID int, to models.InvitationStatus) (*models.Invitation, error) {
	s.mu.Lock()
	inv, ok := s.invitations[token]
	if !ok {
		s.mu.Unlock()
		return nil, database.ErrNotFound
	}
	if err := inv.Transition(to); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	cp := *inv
	s.mu.Unlock()
	if to == models.InvitationAccepted {
		s.addMember(cp.ListID, userID, cp.Role)
	}
	return &cp, nil
}

func (s *memStore) CreateNotification(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = s.id()
	n.CreatedAt = time.Now()
	s.notifications = append(s.notifications, *n)
	return nil
}

func (s *memStore) Notifications(_ context.Context, userID, limit int) ([]models.Notification, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Notification{}
	unread := 0
	for i := len(s.notifications) - 1; i >= 0; i-- {
		n := s.notifications[i]
		if n.UserID != userID {
			continue
		}
		if !n.Read {
			unread++
		}
		if len(out) < limit {
			out = append(out, n)
		}
	}
	return out, unread, nil
}

func (s *memStore) Notification(_ context.Context, id, userID int) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications {
		if n.ID == id && n.UserID == userID {
			cp := n
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *memStore) MarkNotificationRead(_ context.Context, id, userID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notifications {
		if n.ID == id && n.UserID == userID {
			s.notifications[i].Read = true
			return nil
		}
	}
	return database.ErrNotFound
}

func (s *memStore) MarkAllNotificationsRead(_ context.Context, userID int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.notifications {
		if s.notifications[i].UserID == userID && !s.notifications[i].Read {
			s.notifications[i].Read = true
			n++
		}
	}
	return n, nil
}

// recordingPusher stands in for the hub.
type recordingPusher struct {
	mu      sync.Mutex
	pushed  []models.Notification
	evicted [][2]int
}

func (p *recordingPusher) PushNotification(n models.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushed = append(p.pushed, n)
}

func (p *recordingPusher) Evict(listID, userID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evicted = append(p.evicted, [2]int{listID, userID})
}
