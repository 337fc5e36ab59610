package memory

import (
	"context"

	"docportal/internal/model"
)

// SeedUser 测试辅助：插入指定角色的用户
func (db *DB) SeedUser(email, role string) *model.User {
	u := &model.User{Email: email, FullName: email, Role: role}
	if err := db.Users().Create(context.Background(), u); err != nil {
		panic(err)
	}
	return u
}

// SeedProject 测试辅助：插入项目并把 consultants 加入成员表
func (db *DB) SeedProject(title, clientID string, consultants ...string) *model.Project {
	p := &model.Project{Title: title, ClientID: clientID, Status: model.ProjectImplementation}
	if err := db.Projects().Create(context.Background(), p, ""); err != nil {
		panic(err)
	}
	for _, c := range consultants {
		if err := db.Projects().AddMember(context.Background(), p.ID, c); err != nil {
			panic(err)
		}
	}
	return p
}

// SeedRequirement 测试辅助：插入 pending 状态的需求
func (db *DB) SeedRequirement(projectID, name string) *model.DocumentRequirement {
	r := &model.DocumentRequirement{ProjectID: projectID, Name: name, Mandatory: true, Status: model.StatusPending}
	if err := db.Requirements().Create(context.Background(), r); err != nil {
		panic(err)
	}
	return r
}
