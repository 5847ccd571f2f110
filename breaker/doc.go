// Package breaker 为单次外部调用提供超时、有界重试、递增退避和一次性
// fallback（Retry Breaker）。
//
// 第 k 次尝试（1-indexed）的超时为 BaseTimeout × BackoffFactor^(k-1)；
// 失败后睡眠 RetryDelay × BackoffFactor^(k-1) 再重试。全部尝试耗尽时
// fallback 只调用一次，它的失败不再重试。MaxRetries=1 表示严格单次尝试，
// 这是对非幂等昂贵操作的刻意策略。
//
// 每个操作类一个长期实例（如 "external-fetch"、"model-call"），由 Registry
// 统一持有；计数器用原子操作更新，多个运行可并发共享。
package breaker
