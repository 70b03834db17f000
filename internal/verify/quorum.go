// Copyright IBM Corp. All Rights Reserved.
//
// SPDX-License-Identifier: Apache-2.0
//

package verify

import "math/big"

// quorumWeight calculates the minimal weight Q that clears a ratio of the total weight T.
//
// The calculation satisfies:
//    Q = ceil(T * ratio)
// It is computed over rationals so that boundary values are exact: a weight of exactly
// T * ratio clears the ratio.
func quorumWeight(total uint64, ratio *big.Rat) uint64 {
	n := new(big.Int).SetUint64(total)
	n.Mul(n, ratio.Num())
	q, r := new(big.Int).QuoRem(n, ratio.Denom(), new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q.Uint64()
}

// exceedsTwoThirds reports whether n > 2/3 * size, in integers.
func exceedsTwoThirds(n, size int) bool {
	return 3*n > 2*size
}
