//go:build !linux

package main

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/DerLukas15/dwdma"
)

func openUIO(c *dwdma.Config, l *logrus.Logger) (dwdma.Hardware, func(), error) {
	return dwdma.Hardware{}, nil, errors.New("uio backend is only available on linux")
}
