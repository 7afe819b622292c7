// Package orm отображает записи на таблицы поверх dbsession.
//
// Схема объявляется явно:
//
//	var Users = orm.MustDefine("User", []orm.Field{
//		orm.String("id", orm.PrimaryKey(), orm.DefaultFunc(func() any { return orm.NextID() })),
//		orm.String("email", orm.NotNull()),
//		orm.Float("created_at", orm.ReadOnly()),
//	}, orm.Table("users"))
//
// Каждая операция (Get, FindBy, Insert, Update, Delete и т.д.) выполняет ровно один
// примитив сессии, поэтому внутри WithTransaction все они попадают в одну транзакцию,
// а вне её каждая изменяющая операция коммитится сразу.
package orm
