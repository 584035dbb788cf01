package httpserver

import "errors"

var errHijackUnsupported = errors.New("httpserver: response writer does not support hijacking")
