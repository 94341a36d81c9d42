package service

import (
	"context"

	"github.com/cydxin/pulse-sdk/models"
)

// UserService 实时层对用户表的只读访问 + 在线状态回写
type UserService struct {
	*Service
	dao *models.UserDAO
}

func NewUserService(s *Service) *UserService {
	return &UserService{Service: s, dao: models.NewUserDAO(s.DB)}
}

// FindAccount 实现 AccountStore；不存在时返回 ErrAccountNotFound。
func (s *UserService) FindAccount(ctx context.Context, userID uint64) (*models.User, error) {
	u, err := models.NewUserDAO(s.DB.WithContext(ctx)).FindByID(userID)
	if err != nil {
		if s.dao.IsNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return u, nil
}
