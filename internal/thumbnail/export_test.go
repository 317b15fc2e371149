package thumbnail

var RequestLogLevel = requestLogLevel
