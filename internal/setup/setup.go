// Package setup server
package setup

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type Context struct {
	echo.Context
	Log    *zap.SugaredLogger
	Reqid  string
	APIKey string
}
