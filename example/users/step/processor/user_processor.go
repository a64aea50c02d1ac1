package processor

import (
	"strings"

	"itemstep/example/users/domain/entity"
	"itemstep/pkg/batch/core"
	"itemstep/pkg/batch/step/processor"
)

// NewUserProcessor は名前とメールアドレスを大文字に変換する BatchProcessor を返します。
func NewUserProcessor() core.BatchProcessor[entity.User] {
	return processor.Each(func(u *entity.User) error {
		u.Name = strings.ToUpper(u.Name)
		u.Email = strings.ToUpper(u.Email)
		return nil
	})
}
