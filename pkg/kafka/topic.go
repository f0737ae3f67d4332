package kafka

import "fmt"

// TopicPrefix is the prefix shared by every topic this service writes to.
const TopicPrefix = "backend"

// Topic constructs a fully-qualified topic name, e.g. backend.user.registered.
func Topic(domain, action string) string {
	return fmt.Sprintf("%s.%s.%s", TopicPrefix, domain, action)
}
