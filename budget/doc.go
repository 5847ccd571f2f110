// Package budget 实现运行前的资源档位选择与预算预留（Budget Governor）。
//
// 档位 QUICK/STANDARD/DEEP 构成全序，预算不足时 Reserve 沿
// DEEP→STANDARD→QUICK 逐级降级，绝不跳过任何一个放得下的档位；
// 连 QUICK 都放不下时返回未批准的 Reservation，运行不应开始。
package budget
