package blog

import (
	"log/slog"
	"math"
	"time"

	"myblog/internal/orm"
)

func idField() orm.Field {
	return orm.String("id", orm.PrimaryKey(), orm.NotNull(), orm.ReadOnly(), orm.DDL("varchar(50)"),
		orm.DefaultFunc(func() any { return orm.NextID() }))
}

func createdAtField() orm.Field {
	return orm.Float("created_at", orm.NotNull(), orm.ReadOnly(),
		orm.DefaultFunc(func() any { return epoch(time.Now()) }))
}

// Схемы таблиц приложения.
var (
	Users = orm.MustDefine("User", []orm.Field{
		idField(),
		orm.String("email", orm.NotNull(), orm.DDL("varchar(50)")),
		orm.String("password", orm.NotNull(), orm.DDL("varchar(100)")),
		orm.Bool("admin", orm.NotNull()),
		orm.String("name", orm.NotNull(), orm.DDL("varchar(50)")),
		orm.String("image", orm.DDL("varchar(500)")),
		createdAtField(),
	}, orm.Table("users"))

	Blogs = orm.MustDefine("Blog", []orm.Field{
		idField(),
		orm.String("user_id", orm.NotNull(), orm.ReadOnly(), orm.DDL("varchar(50)")),
		orm.String("user_name", orm.NotNull(), orm.DDL("varchar(50)")),
		orm.String("name", orm.NotNull(), orm.DDL("varchar(50)")),
		orm.String("summary", orm.DDL("varchar(200)")),
		orm.Text("content", orm.NotNull()),
		createdAtField(),
	}, orm.Table("blogs"))

	Comments = orm.MustDefine("Comment", []orm.Field{
		idField(),
		orm.String("blog_id", orm.NotNull(), orm.ReadOnly(), orm.DDL("varchar(50)")),
		orm.String("user_id", orm.NotNull(), orm.ReadOnly(), orm.DDL("varchar(50)")),
		orm.String("user_name", orm.NotNull(), orm.DDL("varchar(50)")),
		orm.Text("content", orm.NotNull()),
		createdAtField(),
	}, orm.Table("comments"))
)

// NewRegistry возвращает реестр со схемами блога в порядке создания таблиц.
func NewRegistry(log *slog.Logger) *orm.Registry {
	r := orm.NewRegistry(log)
	r.Register(Users, Blogs, Comments)
	return r
}

// User - зарегистрированный пользователь. Хэш пароля наружу не отдаётся.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Admin     bool      `json:"admin"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Blog - запись блога.
type Blog struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Name      string    `json:"name"`
	Summary   string    `json:"summary"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Comment - комментарий к записи.
type Comment struct {
	ID        string    `json:"id"`
	BlogID    string    `json:"blog_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// BlogWithComments - запись вместе с комментариями, от новых к старым.
type BlogWithComments struct {
	Blog
	Comments []Comment `json:"comments"`
}

// Stats - счётчики записей по таблицам.
type Stats struct {
	Users    int64 `json:"users"`
	Blogs    int64 `json:"blogs"`
	Comments int64 `json:"comments"`
}

func userFromRecord(r orm.Record) User {
	return User{
		ID:        r.String("id"),
		Email:     r.String("email"),
		Name:      r.String("name"),
		Admin:     r.Bool("admin"),
		Image:     r.String("image"),
		CreatedAt: fromEpoch(r.Float64("created_at")),
	}
}

func blogFromRecord(r orm.Record) Blog {
	return Blog{
		ID:        r.String("id"),
		UserID:    r.String("user_id"),
		UserName:  r.String("user_name"),
		Name:      r.String("name"),
		Summary:   r.String("summary"),
		Content:   r.String("content"),
		CreatedAt: fromEpoch(r.Float64("created_at")),
	}
}

func commentFromRecord(r orm.Record) Comment {
	return Comment{
		ID:        r.String("id"),
		BlogID:    r.String("blog_id"),
		UserID:    r.String("user_id"),
		UserName:  r.String("user_name"),
		Content:   r.String("content"),
		CreatedAt: fromEpoch(r.Float64("created_at")),
	}
}

// epoch переводит время в секунды Unix с дробной частью (формат created_at).
func epoch(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

func fromEpoch(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(math.Round(frac*1e6))*int64(time.Microsecond)).UTC()
}
