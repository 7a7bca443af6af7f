// Package agent supervises a local frpc process for the agent deployment
// mode. It owns the on-disk configuration layout (root config plus one
// fragment per workload object), keeps the process running, and triggers hot
// reloads through frpc's admin webserver when fragments change.
package agent
