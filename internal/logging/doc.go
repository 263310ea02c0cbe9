// Package logging provides leveled logging for the media converter.
//
// Levels are DEBUG, INFO, WARN and ERROR, plus Fatal which exits. The level
// is read once from DEBUG (any truthy value forces debug) or LOG_LEVEL, and
// can be overridden with SetLevel. Component loggers created with For prefix
// each message with the component name.
package logging
