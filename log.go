// Copyright (c) 2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package vecvm

import "github.com/tliron/commonlog"

// LoggerName is the commonlog name of the package logger.
const LoggerName = "vecvm"

var log = commonlog.GetLogger(LoggerName)
