package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassify(t *testing.T) {
	assert.True(t, IsNotFound(fmt.Errorf("查询: %w", gorm.ErrRecordNotFound)))
	assert.False(t, IsNotFound(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicate(fmt.Errorf("写入: %w", gorm.ErrDuplicatedKey)))
	assert.False(t, IsDuplicate(gorm.ErrRecordNotFound))
}
