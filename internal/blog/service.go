package blog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"myblog/internal/dbsession"
	"myblog/internal/orm"
	"myblog/internal/shared"
)

// ErrNoSession - в контексте нет сессии БД. Хост обязан создать её на задачу.
var ErrNoSession = errors.New("blog: no database session in context")

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// RegisterUserInput - данные регистрации.
type RegisterUserInput struct {
	Email    string `json:"email" validate:"required,email,max=50"`
	Name     string `json:"name" validate:"required,max=50"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Image    string `json:"image" validate:"omitempty,url,max=500"`
}

// CreateBlogInput - данные новой записи.
type CreateBlogInput struct {
	UserID  string `json:"user_id" validate:"required,max=50"`
	Name    string `json:"name" validate:"required,max=50"`
	Summary string `json:"summary" validate:"max=200"`
	Content string `json:"content" validate:"required"`
}

// AddCommentInput - данные комментария.
type AddCommentInput struct {
	BlogID  string `json:"-" validate:"required,max=50"`
	UserID  string `json:"user_id" validate:"required,max=50"`
	Content string `json:"content" validate:"required"`
}

// Page - параметры постраничной выборки.
type Page struct {
	Offset int
	Limit  int
}

func (p Page) normalize() Page {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = defaultPageSize
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}
	return p
}

// Service - операции блога. Сессия БД берётся из контекста задачи.
type Service struct {
	log      *slog.Logger
	validate *validator.Validate
	cost     int
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт логгер.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithBcryptCost задаёт стоимость хэширования паролей (в тестах - bcrypt.MinCost).
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// NewService создаёт сервис блога.
func NewService(opts ...Option) *Service {
	s := &Service{
		log:      slog.Default(),
		validate: validator.New(),
		cost:     bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "blog"))
	return s
}

func (s *Service) session(ctx context.Context) (*dbsession.Session, error) {
	db, ok := dbsession.FromContext(ctx)
	if !ok {
		return nil, shared.MarkKind(ErrNoSession, shared.KindInternal)
	}
	return db, nil
}

func (s *Service) check(v any) error {
	if err := s.validate.Struct(v); err != nil {
		return shared.MarkKind(err, shared.KindValidation)
	}
	return nil
}

// RegisterUser создаёт пользователя. Email уникален без учёта регистра.
func (s *Service) RegisterUser(ctx context.Context, in RegisterUserInput) (User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if err := s.check(in); err != nil {
		return User{}, err
	}
	db, err := s.session(ctx)
	if err != nil {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	rec := orm.Record{
		"email":    in.Email,
		"password": string(hash),
		"admin":    false,
		"name":     in.Name,
		"image":    in.Image,
	}
	err = db.WithTransaction(ctx, func(ctx context.Context) error {
		n, err := Users.CountBy(ctx, db, "email = ?", in.Email)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("email %s: %w", in.Email, shared.ErrConflict)
		}
		return Users.Insert(ctx, db, rec)
	})
	if err != nil {
		return User{}, err
	}

	u := userFromRecord(rec)
	s.log.InfoContext(ctx, "user registered", slog.String("user_id", u.ID))
	return u, nil
}

// Authenticate проверяет email и пароль. Неизвестный email и неверный пароль
// неразличимы для вызывающего.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	db, err := s.session(ctx)
	if err != nil {
		return User{}, err
	}

	rec, found, err := Users.FindFirst(ctx, db, "email = ?", strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return User{}, err
	}
	if !found {
		return User{}, fmt.Errorf("invalid credentials: %w", shared.ErrUnauthorized)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.String("password")), []byte(password)); err != nil {
		return User{}, fmt.Errorf("invalid credentials: %w", shared.ErrUnauthorized)
	}
	return userFromRecord(rec), nil
}

// CreateBlog создаёт запись от имени существующего пользователя.
func (s *Service) CreateBlog(ctx context.Context, in CreateBlogInput) (Blog, error) {
	if err := s.check(in); err != nil {
		return Blog{}, err
	}
	db, err := s.session(ctx)
	if err != nil {
		return Blog{}, err
	}

	rec, err := dbsession.Transaction(ctx, db, func(ctx context.Context) (orm.Record, error) {
		author, err := Users.Get(ctx, db, in.UserID)
		if err != nil {
			return nil, err
		}
		rec := orm.Record{
			"user_id":   in.UserID,
			"user_name": author.String("name"),
			"name":      in.Name,
			"summary":   in.Summary,
			"content":   in.Content,
		}
		return rec, Blogs.Insert(ctx, db, rec)
	})
	if err != nil {
		return Blog{}, err
	}

	b := blogFromRecord(rec)
	s.log.InfoContext(ctx, "blog created", slog.String("blog_id", b.ID), slog.String("user_id", b.UserID))
	return b, nil
}

// GetBlog возвращает запись с комментариями в рамках одного подключения.
func (s *Service) GetBlog(ctx context.Context, id string) (BlogWithComments, error) {
	db, err := s.session(ctx)
	if err != nil {
		return BlogWithComments{}, err
	}

	var out BlogWithComments
	err = db.WithConnection(ctx, func(ctx context.Context) error {
		rec, err := Blogs.Get(ctx, db, id)
		if err != nil {
			return err
		}
		comments, err := Comments.FindBy(ctx, db, "blog_id = ? ORDER BY created_at DESC, id DESC", id)
		if err != nil {
			return err
		}

		out.Blog = blogFromRecord(rec)
		out.Comments = make([]Comment, len(comments))
		for i, c := range comments {
			out.Comments[i] = commentFromRecord(c)
		}
		return nil
	})
	return out, err
}

// ListBlogs возвращает страницу записей от новых к старым и общее количество.
func (s *Service) ListBlogs(ctx context.Context, page Page) ([]Blog, int64, error) {
	db, err := s.session(ctx)
	if err != nil {
		return nil, 0, err
	}
	page = page.normalize()

	var (
		out   []Blog
		total int64
	)
	err = db.WithConnection(ctx, func(ctx context.Context) error {
		var err error
		if total, err = Blogs.CountAll(ctx, db); err != nil {
			return err
		}
		recs, err := Blogs.FindBy(ctx, db, "1 = 1 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?", page.Limit, page.Offset)
		if err != nil {
			return err
		}
		out = make([]Blog, len(recs))
		for i, r := range recs {
			out[i] = blogFromRecord(r)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// AddComment добавляет комментарий. Запись и автор проверяются в той же транзакции.
func (s *Service) AddComment(ctx context.Context, in AddCommentInput) (Comment, error) {
	if err := s.check(in); err != nil {
		return Comment{}, err
	}
	db, err := s.session(ctx)
	if err != nil {
		return Comment{}, err
	}

	rec, err := dbsession.Transaction(ctx, db, func(ctx context.Context) (orm.Record, error) {
		if _, err := Blogs.Get(ctx, db, in.BlogID); err != nil {
			return nil, err
		}
		author, err := Users.Get(ctx, db, in.UserID)
		if err != nil {
			return nil, err
		}
		rec := orm.Record{
			"blog_id":   in.BlogID,
			"user_id":   in.UserID,
			"user_name": author.String("name"),
			"content":   in.Content,
		}
		return rec, Comments.Insert(ctx, db, rec)
	})
	if err != nil {
		return Comment{}, err
	}
	return commentFromRecord(rec), nil
}

// DeleteBlog удаляет запись вместе с комментариями одной транзакцией.
func (s *Service) DeleteBlog(ctx context.Context, id string) error {
	db, err := s.session(ctx)
	if err != nil {
		return err
	}

	var removed int64
	err = db.WithTransaction(ctx, func(ctx context.Context) error {
		rec, err := Blogs.Get(ctx, db, id)
		if err != nil {
			return err
		}
		removed, err = db.Execute(ctx, "DELETE FROM comments WHERE blog_id = ?", id)
		if err != nil {
			return err
		}
		return Blogs.Delete(ctx, db, rec)
	})
	if err != nil {
		return err
	}

	s.log.InfoContext(ctx, "blog deleted", slog.String("blog_id", id), slog.Int64("comments", removed))
	return nil
}

// Stats считает записи по таблицам на одном подключении.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	db, err := s.session(ctx)
	if err != nil {
		return Stats{}, err
	}

	var st Stats
	err = db.WithConnection(ctx, func(ctx context.Context) error {
		var err error
		if st.Users, err = Users.CountAll(ctx, db); err != nil {
			return err
		}
		if st.Blogs, err = Blogs.CountAll(ctx, db); err != nil {
			return err
		}
		st.Comments, err = Comments.CountAll(ctx, db)
		return err
	})
	return st, err
}

// StatsJob возвращает задачу планировщика, которая логирует счётчики.
func (s *Service) StatsJob() func(ctx context.Context) error {
	return func(ctx context.Context) error {
		start := time.Now()
		st, err := s.Stats(ctx)
		if err != nil {
			return err
		}
		s.log.InfoContext(ctx, "stats",
			slog.Int64("users", st.Users),
			slog.Int64("blogs", st.Blogs),
			slog.Int64("comments", st.Comments),
			slog.Duration("took", time.Since(start)))
		return nil
	}
}
