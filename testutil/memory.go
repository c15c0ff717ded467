package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"task-manager/backend/internal/models"
	"task-manager/backend/internal/repositories"
)

// MemoryStore はテスト用のメモリ上のデータストアです。
// MySQLの外部キー (CASCADE / SET NULL) と同じ削除の挙動を再現します。
type MemoryStore struct {
	mu         sync.Mutex
	users      map[int]*models.User
	categories map[int]*models.Category
	tasks      map[int]*models.Task
	lastID     int
	base       time.Time
	ticks      int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      map[int]*models.User{},
		categories: map[int]*models.Category{},
		tasks:      map[int]*models.Task{},
		base:       time.Now().UTC().Truncate(time.Second),
	}
}

// now は呼ぶたびに1ミリ秒進む時刻を返します。作成順で並び替えが決まるようにするためです。
func (s *MemoryStore) now() time.Time {
	s.ticks++
	return s.base.Add(time.Duration(s.ticks) * time.Millisecond)
}

func (s *MemoryStore) nextID() int {
	s.lastID++
	return s.lastID
}

func (s *MemoryStore) Users() *MemoryUserRepo { return &MemoryUserRepo{s: s} }
func (s *MemoryStore) Categories() *MemoryCategoryRepo { return &MemoryCategoryRepo{s: s} }
func (s *MemoryStore) Tasks() *MemoryTaskRepo { return &MemoryTaskRepo{s: s} }

// TaskCount は保存されているタスクの件数を返します。
func (s *MemoryStore) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// CategoryCount は保存されているカテゴリーの件数を返します。
func (s *MemoryStore) CategoryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.categories)
}

// MemoryUserRepo はrepositories.UserRepositoryのメモリ実装です。
type MemoryUserRepo struct{ s *MemoryStore }

var _ repositories.UserRepository = (*MemoryUserRepo)(nil)

func (r *MemoryUserRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if existing.Username == u.Username {
			return nil, repositories.ErrDuplicateUsername
		}
	}
	created := *u
	created.ID = r.s.nextID()
	created.CreatedAt = r.s.now()
	created.UpdatedAt = created.CreatedAt
	r.s.users[created.ID] = &created
	out := created
	return &out, nil
}

func (r *MemoryUserRepo) FindByID(_ context.Context, id int) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	out := *u
	return &out, nil
}

func (r *MemoryUserRepo) FindByUsername(_ context.Context, username string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Username == username {
			out := *u
			return &out, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (r *MemoryUserRepo) List(_ context.Context) ([]*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	users := make([]*models.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		out := *u
		users = append(users, &out)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (r *MemoryUserRepo) ExistingIDs(_ context.Context, ids []int) ([]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	found := []int{}
	for _, id := range ids {
		if _, ok := r.s.users[id]; ok {
			found = append(found, id)
		}
	}
	sort.Ints(found)
	return found, nil
}

// Delete はユーザーと、所有するタスク・カテゴリー・共有設定を削除します。
func (r *MemoryUserRepo) Delete(_ context.Context, id int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return repositories.ErrUserNotFound
	}
	delete(r.s.users, id)
	for cid, c := range r.s.categories {
		if c.OwnerID == id {
			r.s.deleteCategoryLocked(cid)
		}
	}
	for tid, t := range r.s.tasks {
		if t.OwnerID == id {
			delete(r.s.tasks, tid)
			continue
		}
		shared := t.SharedWith[:0]
		for _, uid := range t.SharedWith {
			if uid != id {
				shared = append(shared, uid)
			}
		}
		t.SharedWith = shared
	}
	return nil
}

// MemoryCategoryRepo はrepositories.CategoryRepositoryのメモリ実装です。
type MemoryCategoryRepo struct{ s *MemoryStore }

var _ repositories.CategoryRepository = (*MemoryCategoryRepo)(nil)

func (r *MemoryCategoryRepo) Create(_ context.Context, c *models.Category) (*models.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[c.OwnerID]; !ok {
		return nil, repositories.ErrInvalidReference
	}
	if r.s.hasCategoryNameLocked(c.OwnerID, c.Name, 0) {
		return nil, repositories.ErrDuplicateCategory
	}
	created := *c
	created.ID = r.s.nextID()
	created.CreatedAt = r.s.now()
	r.s.categories[created.ID] = &created
	out := created
	return &out, nil
}

func (r *MemoryCategoryRepo) FindByID(_ context.Context, id int) (*models.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.categories[id]
	if !ok {
		return nil, repositories.ErrCategoryNotFound
	}
	out := *c
	return &out, nil
}

func (r *MemoryCategoryRepo) ListByOwner(_ context.Context, ownerID int) ([]*models.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	categories := []*models.Category{}
	for _, c := range r.s.categories {
		if c.OwnerID == ownerID {
			out := *c
			categories = append(categories, &out)
		}
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })
	return categories, nil
}

func (r *MemoryCategoryRepo) Update(_ context.Context, id int, fn func(c *models.Category) error) (*models.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.categories[id]
	if !ok {
		return nil, repositories.ErrCategoryNotFound
	}
	c := *stored
	if err := fn(&c); err != nil {
		return nil, err
	}
	if r.s.hasCategoryNameLocked(c.OwnerID, c.Name, id) {
		return nil, repositories.ErrDuplicateCategory
	}
	*stored = c
	return &c, nil
}

func (r *MemoryCategoryRepo) Delete(_ context.Context, id int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.categories[id]; !ok {
		return repositories.ErrCategoryNotFound
	}
	r.s.deleteCategoryLocked(id)
	return nil
}

func (s *MemoryStore) hasCategoryNameLocked(ownerID int, name string, exceptID int) bool {
	for _, c := range s.categories {
		if c.ID != exceptID && c.OwnerID == ownerID && c.Name == name {
			return true
		}
	}
	return false
}

// deleteCategoryLocked はカテゴリーを消し、そのカテゴリーのタスクをカテゴリーなしにします。
func (s *MemoryStore) deleteCategoryLocked(id int) {
	delete(s.categories, id)
	for _, t := range s.tasks {
		if t.CategoryID != nil && *t.CategoryID == id {
			t.CategoryID = nil
		}
	}
}

// MemoryTaskRepo はrepositories.TaskRepositoryのメモリ実装です。
type MemoryTaskRepo struct{ s *MemoryStore }

var _ repositories.TaskRepository = (*MemoryTaskRepo)(nil)

func (r *MemoryTaskRepo) Create(_ context.Context, t *models.Task) (*models.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.checkTaskRefsLocked(t); err != nil {
		return nil, err
	}
	created := t.Clone()
	created.ID = r.s.nextID()
	created.CreatedAt = r.s.now()
	created.OwnerUsername = r.s.users[t.OwnerID].Username
	if created.SharedWith == nil {
		created.SharedWith = []int{}
	}
	sort.Ints(created.SharedWith)
	r.s.tasks[created.ID] = created
	return created.Clone(), nil
}

func (r *MemoryTaskRepo) FindByID(_ context.Context, id int) (*models.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok {
		return nil, repositories.ErrTaskNotFound
	}
	return t.Clone(), nil
}

func (r *MemoryTaskRepo) ListVisible(_ context.Context, userID int, filter models.TaskFilter) ([]*models.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tasks := []*models.Task{}
	for _, t := range r.s.tasks {
		if t.OwnerID != userID && !t.IsSharedWith(userID) {
			continue
		}
		if filter.IsCompleted != nil && t.IsCompleted != *filter.IsCompleted {
			continue
		}
		if filter.CategoryID != nil && (t.CategoryID == nil || *t.CategoryID != *filter.CategoryID) {
			continue
		}
		tasks = append(tasks, t.Clone())
	}
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		}
		return tasks[i].ID > tasks[j].ID
	})
	return tasks, nil
}

// Update はストア全体をロックしたままfnを呼びます。
func (r *MemoryTaskRepo) Update(_ context.Context, id int, fn func(t *models.Task) error) (*models.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.tasks[id]
	if !ok {
		return nil, repositories.ErrTaskNotFound
	}
	t := stored.Clone()
	if err := fn(t); err != nil {
		return nil, err
	}
	if err := r.s.checkTaskRefsLocked(t); err != nil {
		return nil, err
	}
	sort.Ints(t.SharedWith)
	r.s.tasks[id] = t
	return t.Clone(), nil
}

func (r *MemoryTaskRepo) Delete(_ context.Context, id int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tasks[id]; !ok {
		return repositories.ErrTaskNotFound
	}
	delete(r.s.tasks, id)
	return nil
}

// checkTaskRefsLocked は外部キー制約の代わりに参照先の存在を確認します。
func (s *MemoryStore) checkTaskRefsLocked(t *models.Task) error {
	if _, ok := s.users[t.OwnerID]; !ok {
		return repositories.ErrInvalidReference
	}
	if t.CategoryID != nil {
		if _, ok := s.categories[*t.CategoryID]; !ok {
			return repositories.ErrInvalidReference
		}
	}
	for _, uid := range t.SharedWith {
		if _, ok := s.users[uid]; !ok {
			return repositories.ErrInvalidReference
		}
	}
	return nil
}
