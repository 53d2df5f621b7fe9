// Package schedule decides when the worker's recurring maintenance runs,
// such as failing runs whose worker stopped heartbeating.
//
// Schedules are either fixed intervals (Every) or cron expressions and
// descriptors (Parse, Cron).
package schedule
